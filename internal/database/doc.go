// Package database provides the PostgreSQL connection pool and the
// queries backing the symbol directory and reference prices. The data
// path never touches the database; queries run at startup and from the
// refdata poller, and results are pushed into the pipeline through its
// symbol and reference-price load methods.
package database
