// Package azureblob implements the Azure Blob Storage backend adapter
// using azure-sdk-for-go's azblob client, the same SDK azcopy uses for its
// own ranged downloads, translating azcore's *azcore.ResponseError into
// this module's error taxonomy.
package azureblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/tileverse-go/rangereader"
)

// BlobClient is the subset of *blob.Client this adapter needs.
type BlobClient interface {
	DownloadStream(ctx context.Context, o *blob.DownloadStreamOptions) (blob.DownloadStreamResponse, error)
	GetProperties(ctx context.Context, o *blob.GetPropertiesOptions) (blob.GetPropertiesResponse, error)
}

// Reader reads byte ranges from a single Azure blob.
type Reader struct {
	*rangereader.Base

	client   BlobClient
	account  string
	container string
	blobName string
}

// New creates a Reader over an already-constructed blob client, addressed
// for diagnostics as account/container/blobName.
func New(client BlobClient, account, container, blobName string) *Reader {
	r := &Reader{client: client, account: account, container: container, blobName: blobName}
	r.Base = rangereader.NewBase(r)
	return r
}

func (r *Reader) IdentityHook() string {
	return fmt.Sprintf("az://%s/%s/%s", r.account, r.container, r.blobName)
}

func (r *Reader) CloseHook() error { return nil }

func (r *Reader) SizeHook(ctx context.Context) (int64, bool, error) {
	props, err := r.client.GetProperties(ctx, nil)
	if err != nil {
		return 0, false, classifyErr(r.IdentityHook(), "Size", err)
	}
	if props.ContentLength == nil {
		return 0, false, nil
	}
	return *props.ContentLength, true, nil
}

func (r *Reader) ReadUnflipped(ctx context.Context, offset, length int64, target *rangereader.Buffer) (int64, error) {
	resp, err := r.client.DownloadStream(ctx, &blob.DownloadStreamOptions{
		Range: blob.HTTPRange{Offset: offset, Count: length},
	})
	if err != nil {
		return 0, rangereader.NewRangeError(classifyKind(err), "Read", r.IdentityHook(), offset, length, err)
	}
	body := resp.Body
	defer body.Close()

	scratch := make([]byte, length)
	n, err := io.ReadFull(body, scratch)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, rangereader.NewRangeError(rangereader.KindIO, "Read", r.IdentityHook(), offset, length, err)
	}
	written, werr := target.Write(scratch[:n])
	return int64(written), werr
}

func classifyErr(identity, op string, err error) error {
	return rangereader.NewError(classifyKind(err), op, identity, err)
}

func classifyKind(err error) rangereader.Kind {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return rangereader.KindNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return rangereader.KindPermissionDenied
		}
		if respErr.StatusCode >= 500 {
			return rangereader.KindUnavailable
		}
	}
	return rangereader.KindUnavailable
}

// ClientFromConnectionString is a thin convenience wrapper kept at the
// package level so callers outside this module can construct a real
// azblob client without importing azblob directly; it is not used by
// Reader itself, which only depends on the BlobClient interface above.
func ClientFromConnectionString(connString, containerName, blobName string) (*azblob.Client, error) {
	return azblob.NewClientFromConnectionString(connString, nil)
}
