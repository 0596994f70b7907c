// Package provision creates an application-scoped database user.
//
// A run is Authenticate with the administrative credential, UseDatabase for
// the target database, CreateUser for the application credential, then Close.
// Every step fails fast; errors are *Error values carrying a Kind.
// A Verifier logs in as the created user afterwards and checks that it can
// read and write its database but not administer the server.
package provision
