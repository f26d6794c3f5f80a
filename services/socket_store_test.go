package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSocketStoreSupersede(t *testing.T) {
	store := NewSocketStore()
	older, newer := &fakeConn{}, &fakeConn{}

	store.Add("alice", older)
	store.Add("alice", newer)
	assert.True(t, store.Notify("alice", StatusMessage{Message: "hi", Type: TypeInfo}))
	assert.Empty(t, older.all())
	assert.Equal(t, "hi", newer.last()["message"])

	// 旧连接断开不影响新连接
	store.Remove("alice", older)
	_, ok := store.Get("alice")
	assert.True(t, ok)

	store.RemoveConn(newer)
	assert.False(t, store.Notify("alice", StatusMessage{Message: "lost"}))
	assert.Equal(t, 0, store.Len())
}

func TestSocketStoreBrokenConn(t *testing.T) {
	store := NewSocketStore()
	store.Add("bob", &fakeConn{fail: true})
	assert.False(t, store.Notify("bob", StatusMessage{Message: "x"}))
}
