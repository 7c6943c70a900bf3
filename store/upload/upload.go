// Package upload implements the msg uploader (C10), the collaborator
// spec.md §4.10 names "interface only" and SPEC_FULL.md §4.10 makes
// concrete: persist the msg row, then for each attached file its bytes to
// the blob store, its metadata row, and the link row binding msgUUID,
// fileUUID, and flow. Grounded on
// osom_api/context/db/mixins/{msg,file,msg2file}.py.
package upload

import (
	"context"
	"fmt"

	"github.com/geoffjay/dispatchd/core/errs"
	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/store/blob"
	"github.com/geoffjay/dispatchd/store/db"
)

// Uploader persists requests and responses (and their attached files) to
// the audit store, called by the endpoint before forwarding and, opt-in,
// by worker modules after responding.
type Uploader struct {
	db   *db.Store
	blob *blob.Store
}

// New builds an Uploader over an already-open database and blob store.
func New(database *db.Store, blobStore *blob.Store) *Uploader {
	return &Uploader{db: database, blob: blobStore}
}

// UploadRequest persists req and its attached files under flow=request.
// Any failure raises (spec.md §4.10: "any failure raises and the caller
// decides whether to continue") -- the endpoint treats a failure here as
// upload-failure (spec.md §7), reporting an error Response to the user.
func (u *Uploader) UploadRequest(ctx context.Context, req msg.Request) error {
	return u.upload(ctx, req.MsgUUID, req.Provider, req.ChannelID, req.Content, req.Files, db.FlowRequest)
}

// UploadResponse persists resp and its attached files under
// flow=response. Workers that opt in call this after Run; a failure here
// is logged only (spec.md §7: "a worker's post-response upload failure is
// logged only").
func (u *Uploader) UploadResponse(ctx context.Context, provider string, resp msg.Response) error {
	return u.upload(ctx, resp.MsgUUID, provider, "", resp.Content, resp.Files, db.FlowResponse)
}

func (u *Uploader) upload(ctx context.Context, msgUUID, provider, channelID, content string, files []msg.File, flow db.Flow) error {
	if err := u.db.InsertMsg(ctx, msgUUID, provider, channelID, content); err != nil {
		return &errs.UploadFailureError{Cause: fmt.Errorf("insert msg %s: %w", msgUUID, err)}
	}

	for _, f := range files {
		key := blob.Key(provider, f.UUID)
		if err := u.blob.Put(ctx, key, f.Data, f.MimeType); err != nil {
			return &errs.UploadFailureError{Cause: fmt.Errorf("put blob %s: %w", key, err)}
		}

		f.Storage = msg.StorageS3
		if err := u.db.InsertFile(ctx, f); err != nil {
			return &errs.UploadFailureError{Cause: fmt.Errorf("insert file %s: %w", f.UUID, err)}
		}

		if err := u.db.InsertLink(ctx, msgUUID, f.UUID, flow); err != nil {
			return &errs.UploadFailureError{Cause: fmt.Errorf("insert link %s/%s: %w", msgUUID, f.UUID, err)}
		}
	}
	return nil
}
