// Package grantor bootstraps an application database user: it authenticates
// with an administrative credential, switches to the target database and
// creates the user with its role grants, optionally verifying the result and
// recording every attempt in a journal.
//
// Supported servers are MongoDB, PostgreSQL and MySQL. See the provision
// package for the individual steps and the config package for settings.
package grantor
