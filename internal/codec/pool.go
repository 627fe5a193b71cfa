package codec

import "sync"

// Object pools for the hot message types: the ones that are encoded or
// decoded once per data block / per file rather than once per connection.
// The pools are thread-safe by construction (sync.Pool); a borrowed
// instance is reset before reuse, and putting the same instance back
// twice is a caller bug but must not panic or corrupt pool state — Put
// never inspects whether the value is already pooled.
var (
	commonResponsePool = sync.Pool{New: func() any { return &CommonResponse{} }}
	dataBlockPool      = sync.Pool{New: func() any { return &DataBlock{} }}
	uploadFilePool     = sync.Pool{New: func() any { return &UploadFile{} }}
	helloPool          = sync.Pool{New: func() any { return &Hello{} }}
	authPool           = sync.Pool{New: func() any { return &Auth{} }}
)

// GetCommonResponse borrows a reset *CommonResponse from the pool.
func GetCommonResponse() *CommonResponse {
	m := commonResponsePool.Get().(*CommonResponse)
	m.Reset()
	return m
}

// PutCommonResponse returns m to the pool.
func PutCommonResponse(m *CommonResponse) { commonResponsePool.Put(m) }

// GetDataBlock borrows a reset *DataBlock from the pool.
func GetDataBlock() *DataBlock {
	m := dataBlockPool.Get().(*DataBlock)
	m.Reset()
	return m
}

// PutDataBlock returns m to the pool.
func PutDataBlock(m *DataBlock) { dataBlockPool.Put(m) }

// GetUploadFile borrows a reset *UploadFile from the pool.
func GetUploadFile() *UploadFile {
	m := uploadFilePool.Get().(*UploadFile)
	m.Reset()
	return m
}

// PutUploadFile returns m to the pool.
func PutUploadFile(m *UploadFile) { uploadFilePool.Put(m) }

// GetHello borrows a reset *Hello from the pool.
func GetHello() *Hello {
	m := helloPool.Get().(*Hello)
	m.Reset()
	return m
}

// PutHello returns m to the pool.
func PutHello(m *Hello) { helloPool.Put(m) }

// GetAuth borrows a reset *Auth from the pool.
func GetAuth() *Auth {
	m := authPool.Get().(*Auth)
	m.Reset()
	return m
}

// PutAuth returns m to the pool.
func PutAuth(m *Auth) { authPool.Put(m) }

// getPooled borrows a reset, zero-valued Message for t from its pool, for
// the five hot types DecodeBody sees once per data block or per file. Every
// other type still goes through registry's plain factories: spinning up a
// pool for a message that crosses the wire once per connection would just
// be another allocation site to account for.
func getPooled(t Type) (Message, bool) {
	switch t {
	case TypeCommonResponse:
		return GetCommonResponse(), true
	case TypeDataBlock:
		return GetDataBlock(), true
	case TypeUploadFile:
		return GetUploadFile(), true
	case TypeHello:
		return GetHello(), true
	case TypeAuth:
		return GetAuth(), true
	default:
		return nil, false
	}
}

// Release returns m to its pool if it is one of the five pooled hot types,
// and reports whether it did. Callers use it once they are done reading
// m's fields — after that point m's contents are liable to be overwritten
// by an unrelated Get. A DataBlock whose Payload was handed off to an
// asynchronous reader (the archive extractor's block channel) must not be
// released this way: decoding the next block into the same pooled struct
// would overwrite that Payload's backing array out from under the reader.
func Release(m Message) bool {
	switch v := m.(type) {
	case *CommonResponse:
		PutCommonResponse(v)
	case *DataBlock:
		PutDataBlock(v)
	case *UploadFile:
		PutUploadFile(v)
	case *Hello:
		PutHello(v)
	case *Auth:
		PutAuth(v)
	default:
		return false
	}
	return true
}
