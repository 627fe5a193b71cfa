// Package codec implements the Janus wire framing: MAGIC(4) | TYPE(u32) |
// BODY_LEN(u64) | BODY, and the catalogue of message bodies that ride
// inside it.
package codec

import "fmt"

// Type identifies a message's wire type. The set of valid types is closed
// and enumerated below; decode rejects anything outside it.
type Type uint32

const (
	TypeHello               Type = 0x1000
	TypeAuth                Type = 0x1001
	TypeGetSystemTimeMillis Type = 0x1801
	TypeFetchFileTree       Type = 0x2001
	TypeCommitSyncPlan      Type = 0x2002
	TypeUploadFile          Type = 0x2003
	TypeUploadArchive       Type = 0x2004
	TypeConfirmArchives     Type = 0x2005
	TypeConfirmFiles        Type = 0x2006
	TypeBye                 Type = 0x2007
	TypeCommonResponse      Type = 0xA001
	TypeDataBlock           Type = 0xA002
)

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(0x%04X)", uint32(t))
}

var typeNames = map[Type]string{
	TypeHello:               "Hello",
	TypeAuth:                "Auth",
	TypeGetSystemTimeMillis: "GetSystemTimeMillis",
	TypeFetchFileTree:       "FetchFileTree",
	TypeCommitSyncPlan:      "CommitSyncPlan",
	TypeUploadFile:          "UploadFile",
	TypeUploadArchive:       "UploadArchive",
	TypeConfirmArchives:     "ConfirmArchives",
	TypeConfirmFiles:        "ConfirmFiles",
	TypeBye:                 "Bye",
	TypeCommonResponse:      "CommonResponse",
	TypeDataBlock:           "DataBlock",
}

// Message is implemented by every wire body. Reset restores an instance to
// its zero value so it can be safely handed back to a pool.
type Message interface {
	Type() Type
	MarshalBody() ([]byte, error)
	UnmarshalBody([]byte) error
	Reset()
}

// CommonResponseCodeSuccess is the CommonResponse.Code value meaning the
// requested operation completed without error.
const CommonResponseCodeSuccess int32 = 0

// CommonResponseCodeFailure is used for generic (non-zero) failures when a
// more specific code is not called for.
const CommonResponseCodeFailure int32 = 1
