package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DBLastSeen is the moment a user's last connection went away.
type DBLastSeen struct {
	UserID   string `msgpack:"userId" json:"userId"`
	LastSeen int64  `msgpack:"lastSeen" json:"lastSeen"` // unix milliseconds
	Visits   int64  `msgpack:"visits" json:"visits"`
}

func (l *DBLastSeen) Key() []byte {
	return []byte(l.UserID)
}

func (l *DBLastSeen) MarshalBinary() (data []byte, err error) {
	type alias DBLastSeen
	return msgpack.Marshal((*alias)(l))
}

func (l *DBLastSeen) UnmarshalBinary(data []byte) error {
	type alias DBLastSeen
	return msgpack.Unmarshal(data, (*alias)(l))
}
