package storage

import (
	"github.com/fxamacker/cbor/v2"

	"pixelweather-go/errcode"
	"pixelweather-go/types"
)

// Namespace groups the node's keys in the durable store.
const Namespace = "pixelweather"

const (
	keyLastError = "last_error"
	keySettings  = "settings"
)

// ErrorRecord is the serialised form of a recoverable error that ended a
// cycle. It is kept until it has been reported upstream.
type ErrorRecord struct {
	Code    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

func (r ErrorRecord) String() string { return r.Message }

// NVS exposes typed accessors over a DurableStore.
type NVS struct {
	store DurableStore
}

func NewNVS(store DurableStore) *NVS { return &NVS{store: store} }

// StoreLastError records err, replacing any previous record.
func (n *NVS) StoreLastError(err error) error {
	if err == nil {
		return errcode.New(errcode.UnexpectedNull, "store_last_error", "nil error")
	}
	rec := ErrorRecord{Code: string(errcode.Of(err)), Message: err.Error()}
	raw, merr := cbor.Marshal(rec)
	if merr != nil {
		return errcode.Wrap(errcode.NvsWrite, "store_last_error", merr)
	}
	return errcode.Wrap(errcode.NvsWrite, "store_last_error", n.store.Set(keyLastError, raw))
}

// LastError returns the stored record, or nil if there is none.
func (n *NVS) LastError() (*ErrorRecord, error) {
	raw, ok, err := n.store.Get(keyLastError)
	if err != nil {
		return nil, errcode.Wrap(errcode.NvsRead, "last_error", err)
	}
	if !ok {
		return nil, nil
	}
	var rec ErrorRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return nil, errcode.Wrap(errcode.NvsRead, "last_error", err)
	}
	return &rec, nil
}

// ClearLastError removes the record. Clearing an absent record is not an
// error.
func (n *NVS) ClearLastError() error {
	err := n.store.Delete(keyLastError)
	if errcode.Of(err) == errcode.InvalidNvsKey {
		return nil
	}
	return errcode.Wrap(errcode.NvsWrite, "clear_last_error", err)
}

// StoreSettings persists the last settings received from the server.
func (n *NVS) StoreSettings(s types.Settings) error {
	raw, err := cbor.Marshal(s)
	if err != nil {
		return errcode.Wrap(errcode.NvsWrite, "store_settings", err)
	}
	return errcode.Wrap(errcode.NvsWrite, "store_settings", n.store.Set(keySettings, raw))
}

// Settings returns the persisted settings; ok is false if none were stored.
func (n *NVS) Settings() (s types.Settings, ok bool, err error) {
	raw, ok, err := n.store.Get(keySettings)
	if err != nil {
		return s, false, errcode.Wrap(errcode.NvsRead, "settings", err)
	}
	if !ok {
		return s, false, nil
	}
	if err := cbor.Unmarshal(raw, &s); err != nil {
		return s, false, errcode.Wrap(errcode.NvsRead, "settings", err)
	}
	return s, true, nil
}
