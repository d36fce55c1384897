package kpistore

import (
	"context"

	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/schema"
	"github.com/stretchr/testify/mock"
)

// MockRecordStore is a mock implementation of RecordStore for testing.
type MockRecordStore struct {
	mock.Mock
}

var _ contract.RecordStore = &MockRecordStore{} // Compile-time check

// Insert implements the RecordStore interface.
func (m *MockRecordStore) Insert(ctx context.Context, r *schema.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// Find implements the RecordStore interface.
func (m *MockRecordStore) Find(ctx context.Context, filter schema.RecordFilter) ([]schema.Record, error) {
	args := m.Called(ctx, filter)
	records, _ := args.Get(0).([]schema.Record)
	return records, args.Error(1)
}

// Count implements the RecordStore interface.
func (m *MockRecordStore) Count(ctx context.Context, filter schema.RecordFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

// Delete implements the RecordStore interface.
func (m *MockRecordStore) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Status implements the RecordStore interface.
func (m *MockRecordStore) Status(ctx context.Context) (schema.StoreStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(schema.StoreStatus), args.Error(1)
}

// Close implements the RecordStore interface.
func (m *MockRecordStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
