// Package models defines the entities exchanged with the price-tracking service and the
// records pwatch persists locally.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): JSON shapes of the HTTP API
//   - [User] : Account record returned by /auth/me and login responses
//   - [Product] : Marketplace product summary returned by /products/{article}
//   - [Tracking] : A saved watch, optionally carrying its [PricePoint] history
//   - [AuthResponse] : Token grant returned by the login, Telegram and OAuth code endpoints
//   - [WatchRequest] : Payload that saves a new watch
//
// 2. Persistent Entities: Local database records with lifecycle management
//   - [ExportRecord] : One CSV file written by the history exporter
//
// Persistent entities implement the [Model] interface and are stored through a [Repository].
package models
