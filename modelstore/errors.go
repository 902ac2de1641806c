package modelstore

import "fmt"

// LoadError means a registered model could not be deserialized and is left
// out of the store.
type LoadError struct {
	Name string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %q from %s: %v", e.Name, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RemoteFetchError means the artifact download failed. Loading the local path
// is still attempted afterwards.
type RemoteFetchError struct {
	Name   string
	Bucket string
	Key    string
	Err    error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("fetch model %q from s3://%s/%s: %v", e.Name, e.Bucket, e.Key, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }
