// package models defines the normalized domain model the pipeline loads
// into the relational store: the user profile, reference entities
// (artists, albums, tracks) and append-only facts (listening events,
// top-track ranking snapshots).
package models
