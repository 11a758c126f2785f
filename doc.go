// Package ddf contains the core components of ddf, a tabular-data abstraction
// layer over partitioned Parquet datasets in object storage. This root package
// defines the types which are employed during regular use of the library, as
// well as in the extension of the library, and is an excellent overview of
// ddf's key concepts: Datasets are handles over piece files, transformations
// are deferred as dual engine/local operation chains, and heavy computation is
// delegated to a pluggable execution Engine.
package ddf
