// Package server provides a minimal blocking TCP acceptor that feeds a worker pool.
//
// For every accepted connection the Server submits exactly one job to its
// Executor (normally a *threadpool.Pool). The job reads a single request of
// up to ReadBufferSize bytes and answers with a toy subset of HTTP/1.1:
//
//	GET / HTTP/1.1       -> 200 OK with the hello page
//	GET /sleep HTTP/1.1  -> 200 OK with the hello page after SlowDelay
//	anything else        -> 404 NOT FOUND with the not-found page
//
// Each response is a status line, a Content-Length header and the body.
// There is no keep-alive; the connection is closed after one response.
//
// # Basic Usage
//
//	pool, _ := threadpool.Build(4)
//	defer pool.Close()
//
//	srv := server.New(server.DefaultConfig(), pool)
//	if err := srv.ListenAndServe(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Serve returns nil when ctx is cancelled or MaxConnections have been
// accepted. A failure to submit a connection to the Executor is fatal and is
// returned to the caller.
package server
