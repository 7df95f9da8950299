// Package client is the Go client for a vaultsync server. SyncClient talks
// to the gRPC SyncService, pulling every page of changes since a checkpoint
// and pushing edits in batches the server accepts. AttachmentClient moves
// sealed attachment blobs through presigned URLs obtained from the HTTP API.
package client
