// Package storage persists group subscription configs, user profiles and
// pending unmutes.
//
// Drivers:
//   - "file": dependency-free JSON snapshot plus append-only journal
//   - "sqlite": modernc.org/sqlite through sqlx
//   - "postgres": pgx stdlib through sqlx
package storage
