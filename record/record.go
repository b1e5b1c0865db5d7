package record

import (
	"fmt"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	whatKey   = "what"
	fieldsKey = "fields"
)

// New creates new record.
func New(what uint32, fields map[string]any) (*Record, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return newRecord(what, s)
}

// Unmarshal decodes record produced by Marshal.
func Unmarshal(data []byte) (*Record, error) {
	envelope := &structpb.Struct{}
	if err := proto.Unmarshal(data, envelope); err != nil {
		return nil, errors.WithStack(err)
	}

	whatValue, exists := envelope.GetFields()[whatKey]
	if !exists {
		return nil, errors.New("record code is missing")
	}
	fields := envelope.GetFields()[fieldsKey].GetStructValue()
	if fields == nil {
		return nil, errors.New("record fields are missing")
	}

	return newRecord(uint32(whatValue.GetNumberValue()), fields)
}

func newRecord(what uint32, fields *structpb.Struct) (*Record, error) {
	r := &Record{
		what:   what,
		fields: fields,
	}
	data, err := r.Marshal()
	if err != nil {
		return nil, err
	}
	r.checksum = xxhash.Sum64(data)
	return r, nil
}

// Record is the immutable data record stored in tree nodes.
// It is safe to share between goroutines.
type Record struct {
	what     uint32
	fields   *structpb.Struct
	checksum uint64
}

// What returns record code.
func (r *Record) What() uint32 {
	return r.what
}

// Field returns value of the field.
func (r *Record) Field(name string) (any, bool) {
	v, exists := r.fields.GetFields()[name]
	if !exists {
		return nil, false
	}
	return v.AsInterface(), true
}

// Fields returns copy of all the fields.
func (r *Record) Fields() map[string]any {
	return r.fields.AsMap()
}

// Checksum returns checksum of the record.
func (r *Record) Checksum() uint64 {
	return r.checksum
}

// Marshal encodes record deterministically.
func (r *Record) Marshal() ([]byte, error) {
	envelope := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			whatKey:   structpb.NewNumberValue(float64(r.what)),
			fieldsKey: structpb.NewStructValue(r.fields),
		},
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(envelope)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// String returns human-readable form of the record.
func (r *Record) String() string {
	return fmt.Sprintf("Record what=%d fields=%v", r.what, r.fields.AsMap())
}
