// Package repository contains the read-only data access the lock service
// needs from the primary MySQL database: showtime existence, hall layout
// dimensions and seats already sold.  Booking writes, CRUD and everything
// else belong to the main booking application; this service only reads.
package repository

import "errors"

// ErrShowtimeNotFound is returned when the requested showtime does not
// exist.  Handlers translate it into an HTTP 404 and the lock service is
// never called for the request.
var ErrShowtimeNotFound = errors.New("showtime not found")
