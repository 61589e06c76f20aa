// Package config defines the configuration for a hive node.
//
// Regardless of how hive is started, directly from Go code or as a standalone
// process from the command line, it uses the Config object defined in this
// package to store and forward configuration options. On top of these
// configuration options, hive relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key   // a plain text file containing the raw private key (cf. hive keygen).
//  peers.json // (static discovery) a JSON file containing the list of peers.
//  hive.toml  // (optional) values for the command line flags.
package config
