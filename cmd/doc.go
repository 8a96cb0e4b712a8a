// Package cmd defines the catalog CLI.
//
// The root command loads configuration (config file, .env files and CATALOG_*
// environment variables), builds the zap logger and an app.App container, and
// hands it to one of three subcommands through the command context:
//
//	serve  read-only model and hardware query API
//	audio  whole-file and chunked streaming of one audio file
//	load   fetch model metadata from the hub, write a CSV report and upsert
//	       every model into the catalog
//
// Services such as the Postgres pool, blob store and Pub/Sub publisher are
// opened lazily by the container and closed when the command returns.
package cmd
