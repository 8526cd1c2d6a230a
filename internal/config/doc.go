// Package config provides configuration structures and loaders for surfacefuzz.
// Config holds the runtime options set from the command line; SiteConfig holds
// one target's options read from a site configuration file.
package config
