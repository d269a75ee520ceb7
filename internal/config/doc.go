// Package config loads the settings of the circulation command and opens database pools.
//
// Every setting has an environment variable (CIRCULATION_*) and a command line flag;
// the flag wins. The PostgreSQL pool helpers cover the three supported drivers
// (pgx.Pool, sql.DB via lib/pq, sqlx.DB) with the same pool sizing.
package config
