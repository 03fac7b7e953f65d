package model

import (
	"sync/atomic"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var vectorColumns atomic.Bool

// UseVectorColumns switches Quote.Embedding to a pgvector column on postgres.
// It must be called before migration; when off, embeddings are stored as text.
func UseVectorColumns(on bool) {
	vectorColumns.Store(on)
}

// Vector stores an embedding as a pgvector column when enabled on postgres and
// as its text form ("[1,2,3]") everywhere else.
type Vector struct {
	pgvector.Vector
}

func NewVector(values []float32) *Vector {
	if len(values) == 0 {
		return nil
	}
	return &Vector{Vector: pgvector.NewVector(values)}
}

func (Vector) GormDataType() string {
	return "vector"
}

func (Vector) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if vectorColumns.Load() && db.Dialector.Name() == "postgres" {
		return "vector"
	}
	return "text"
}
