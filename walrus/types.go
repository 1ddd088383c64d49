package walrus

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultPublisherURL  = "https://publisher.walrus-01.tududes.com"
	DefaultAggregatorURL = "https://aggregator.walrus-testnet.walrus.space"
	DefaultSuiNetwork    = "testnet"

	StatusAlreadyCertified = "Already certified"
	StatusNewlyCreated     = "Newly created"
)

// Endpoints locates the Walrus publisher, the aggregator and the Sui explorer
type Endpoints struct {
	PublisherURL  string
	AggregatorURL string
	SuiNetwork    string
}

// DefaultEndpoints targets the public Walrus testnet
func DefaultEndpoints() Endpoints {
	return Endpoints{
		PublisherURL:  DefaultPublisherURL,
		AggregatorURL: DefaultAggregatorURL,
		SuiNetwork:    DefaultSuiNetwork,
	}
}

func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	if e.PublisherURL == "" {
		e.PublisherURL = d.PublisherURL
	}
	if e.AggregatorURL == "" {
		e.AggregatorURL = d.AggregatorURL
	}
	if e.SuiNetwork == "" {
		e.SuiNetwork = d.SuiNetwork
	}
	e.PublisherURL = strings.TrimRight(e.PublisherURL, "/")
	e.AggregatorURL = strings.TrimRight(e.AggregatorURL, "/")
	return e
}

// ValidateBlobID accepts the unpadded base64url ids Walrus hands out
func ValidateBlobID(blobID string) error {
	if blobID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidBlobID)
	}
	for _, r := range blobID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidBlobID, blobID, r)
		}
	}
	return nil
}

// BlobURL is where the aggregator serves a blob
func (e Endpoints) BlobURL(blobID string) string {
	return e.AggregatorURL + "/v1/blobs/" + url.PathEscape(blobID)
}

// MetadataURL is the aggregator's info endpoint for a blob
func (e Endpoints) MetadataURL(blobID string) string {
	return e.BlobURL(blobID) + "/info"
}

func (e Endpoints) suiTxURL() string {
	return "https://suiscan.xyz/" + e.SuiNetwork + "/tx"
}

func (e Endpoints) suiObjectURL() string {
	return "https://suiscan.xyz/" + e.SuiNetwork + "/object"
}

// UploadResult is the normalized publisher answer
type UploadResult struct {
	Status     string `json:"status"`
	BlobID     string `json:"blobId"`
	EndEpoch   int64  `json:"endEpoch"`
	SuiRefType string `json:"suiRefType"`
	SuiRef     string `json:"suiRef"`
	SuiBaseURL string `json:"suiBaseUrl"`
	BlobURL    string `json:"blobUrl"`
	SuiURL     string `json:"suiUrl"`
}

// DownloadResult describes a blob written to disk
type DownloadResult struct {
	FilePath    string         `json:"filePath"`
	BlobID      string         `json:"blobId"`
	ContentType string         `json:"contentType"`
	Size        int64          `json:"size"`
	Metadata    map[string]any `json:"metadata"`
}

// Blob is an aggregator answer held in memory
type Blob struct {
	ID          string
	ContentType string
	Data        []byte
}

// StoreOutcome is one of the two success shapes the publisher answers with.
// The set of implementations is closed: *AlreadyCertified and *NewlyCreated.
type StoreOutcome interface {
	storeOutcome()
}

// AlreadyCertified is returned when identical content is already stored
type AlreadyCertified struct {
	BlobID   string `json:"blobId"`
	EndEpoch int64  `json:"endEpoch"`
	Event    struct {
		TxDigest string `json:"txDigest"`
		EventSeq string `json:"eventSeq,omitempty"`
	} `json:"event"`
}

// NewlyCreated is returned when the publisher registered a new blob object
type NewlyCreated struct {
	BlobObject struct {
		ID      string `json:"id"`
		BlobID  string `json:"blobId"`
		Storage struct {
			EndEpoch int64 `json:"endEpoch"`
		} `json:"storage"`
	} `json:"blobObject"`
}

func (*AlreadyCertified) storeOutcome() {}
func (*NewlyCreated) storeOutcome()     {}

type storeResponse struct {
	AlreadyCertified *AlreadyCertified `json:"alreadyCertified"`
	NewlyCreated     *NewlyCreated     `json:"newlyCreated"`
}

// DecodeStoreResponse picks the variant present in a publisher response body
func DecodeStoreResponse(data []byte) (StoreOutcome, error) {
	var resp storeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedResponseShape, err)
	}
	switch {
	case resp.AlreadyCertified != nil:
		return resp.AlreadyCertified, nil
	case resp.NewlyCreated != nil:
		return resp.NewlyCreated, nil
	}
	return nil, ErrUnrecognizedResponseShape
}

// NormalizeStoreOutcome flattens either variant into an UploadResult and
// derives the aggregator and explorer links.
func NormalizeStoreOutcome(o StoreOutcome, e Endpoints) (*UploadResult, error) {
	e = e.withDefaults()

	var r UploadResult
	switch v := o.(type) {
	case *AlreadyCertified:
		r = UploadResult{
			Status:     StatusAlreadyCertified,
			BlobID:     v.BlobID,
			EndEpoch:   v.EndEpoch,
			SuiRefType: "Previous Sui Certified Event",
			SuiRef:     v.Event.TxDigest,
			SuiBaseURL: e.suiTxURL(),
		}
	case *NewlyCreated:
		r = UploadResult{
			Status:     StatusNewlyCreated,
			BlobID:     v.BlobObject.BlobID,
			EndEpoch:   v.BlobObject.Storage.EndEpoch,
			SuiRefType: "Associated Sui Object",
			SuiRef:     v.BlobObject.ID,
			SuiBaseURL: e.suiObjectURL(),
		}
	default:
		return nil, ErrUnrecognizedResponseShape
	}

	r.BlobURL = e.BlobURL(r.BlobID)
	r.SuiURL = r.SuiBaseURL + "/" + r.SuiRef
	return &r, nil
}
