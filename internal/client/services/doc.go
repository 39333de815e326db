// Package services contains the authenticated calls the client makes to the
// screening API.
//
// Every call takes its bearer token from a TokenSource and goes through the
// request dedup cache, so identical calls made while one is in flight
// share a single request.
package services
