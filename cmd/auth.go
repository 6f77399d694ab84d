package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/spindle/internal/server"
	"github.com/desertthunder/spindle/internal/services"
	"github.com/desertthunder/spindle/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize with Spotify and cache tokens in the config file",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser authorization",
				Value: 2 * time.Minute,
			},
		},
		Action: r.SpotifyAuth,
	}
}

// SpotifyAuth drives the OAuth2 authorization code flow: starts the loopback
// callback server, opens the authorization URL in the browser, and persists
// the exchanged tokens back into the config file.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.requireService()
	if err != nil {
		return err
	}
	oauthSvc, ok := svc.(services.OAuthService)
	if !ok {
		return fmt.Errorf("%w: %s does not support the authorization flow", shared.ErrInvalidInput, svc.Name())
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewCallbackHandler(oauthSvc.GetOAuthConfig(), state)
	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(handler)

	addr, err := server.ListenAddr(r.config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return fmt.Errorf("%w: bad redirect_uri: %v", shared.ErrInvalidConfig, err)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(serveCtx, addr, router, r.logger)
	}()

	authURL := oauthSvc.GetAuthURL(state)
	r.writePlain("Opening your browser to authorize with Spotify...\n")
	r.writePlain("If it does not open, visit:\n%s\n", authURL)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("could not open browser", "error", err)
	}

	var token *oauth2.Token
	select {
	case result, open := <-handler.Result():
		if !open {
			return fmt.Errorf("%w: callback server closed unexpectedly", shared.ErrAuth)
		}
		if result.Error() != nil {
			return fmt.Errorf("%w: %v", shared.ErrAuth, result.Error())
		}
		token = result.Token
	case err := <-serveErr:
		return fmt.Errorf("%w: callback server: %v", shared.ErrAuth, err)
	case <-time.After(cmd.Duration("timeout")):
		return fmt.Errorf("%w: no authorization callback received", shared.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := svc.Authenticate(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuth, err)
	}

	if err := r.persistToken(token); err != nil {
		r.logger.Warn("authenticated, but token could not be saved", "error", err)
	}

	profile, err := svc.Profile(ctx)
	if err != nil {
		return fmt.Errorf("%w: token verification failed: %v", shared.ErrAuth, err)
	}

	r.writePlain("Authenticated as %s (%s)\n", profile.DisplayName, profile.ID)
	return nil
}

// persistToken writes the token into the config file so later process
// starts skip the browser flow.
func (r *Runner) persistToken(token *oauth2.Token) error {
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return err
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return err
	}
	r.logger.Info("tokens saved", "path", r.configPath)
	return nil
}

// authenticateFromConfig installs the cached token on the service, erroring
// when no token has been stored yet.
func (r *Runner) authenticateFromConfig(ctx context.Context, svc services.Service) error {
	token := r.config.Credentials.Spotify.Token()
	if token == nil {
		return fmt.Errorf("%w: run `spindle auth` first", shared.ErrNotAuthenticated)
	}
	if err := svc.Authenticate(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuth, err)
	}
	return nil
}

// refreshPersistedToken saves the service's current token when the oauth2
// transport refreshed it during a run.
func (r *Runner) refreshPersistedToken(svc services.Service) {
	oauthSvc, ok := svc.(services.OAuthService)
	if !ok {
		return
	}
	token := oauthSvc.Token()
	if token == nil || token.AccessToken == r.config.Credentials.Spotify.AccessToken {
		return
	}
	if err := r.persistToken(token); err != nil {
		r.logger.Warn("refreshed token could not be saved", "error", err)
	}
}
