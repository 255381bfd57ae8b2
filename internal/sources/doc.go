// Package sources produces candidate domains for discovery runs: the Tranco
// top-sites list and curated awesome-pwa markdown lists. Source failures are
// logged and contribute nothing rather than aborting a run.
package sources
