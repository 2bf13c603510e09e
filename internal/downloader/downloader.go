// Package downloader abstracts the external download client. The daemon
// talks to qBittorrent's WebUI API; tests substitute an in-memory fake.
package downloader

import "context"

// TransferState describes where a remote transfer currently is.
type TransferState string

const (
	// TransferDownloading covers every active remote state, including
	// stalled and queued transfers that qBittorrent will resume on its own.
	TransferDownloading TransferState = "downloading"
	TransferPaused      TransferState = "paused"
	TransferComplete    TransferState = "complete"
	TransferErrored     TransferState = "errored"
	// TransferMissing means the client no longer knows the transfer, e.g.
	// it was deleted out-of-band from the WebUI.
	TransferMissing TransferState = "missing"
)

// TransferStatus is a point-in-time progress snapshot for one transfer.
type TransferStatus struct {
	State           TransferState
	TotalBytes      int64
	DownloadedBytes int64
	SpeedBps        int64
	ETASeconds      int64
}

// Client is the remote download client surface the processor depends on.
type Client interface {
	// Add submits a magnet link or torrent URL and returns the client's
	// identifier for the new transfer.
	Add(ctx context.Context, downloadURL string) (string, error)
	// Status reports progress for a transfer previously returned by Add.
	Status(ctx context.Context, clientID string) (TransferStatus, error)
	Pause(ctx context.Context, clientID string) error
	Resume(ctx context.Context, clientID string) error
	// Cancel removes the transfer and its partial data.
	Cancel(ctx context.Context, clientID string) error
}
