// Package crawler defines the types and collaborator interfaces shared by the
// fetchers, classifier strategies, batch runner, and discovery pipelines.
package crawler
