package llrp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContinuationRegistryFIFO(t *testing.T) {
	r := newContinuationRegistry()
	var order []int
	r.add(MsgAddROSpecResponse, func(*Message) { order = append(order, 1) }, nil)
	r.add(MsgAddROSpecResponse, func(*Message) { order = append(order, 2) }, nil)

	success := &Message{Name: MsgAddROSpecResponse, Fields: map[string]interface{}{
		"LLRPStatus": map[string]interface{}{"StatusCode": "Success"},
	}}
	require.True(t, r.fire(success))
	require.True(t, r.fire(success))
	assert.Equal(t, []int{1, 2}, order)
}

func TestContinuationRegistryNoMatchReturnsFalse(t *testing.T) {
	r := newContinuationRegistry()
	msg := &Message{Name: MsgKeepalive}
	assert.False(t, r.fire(msg))
}

func TestContinuationRegistryFailureBranch(t *testing.T) {
	r := newContinuationRegistry()
	var gotErr error
	r.add(MsgAddROSpecResponse, func(*Message) { t.Fatal("onSuccess should not run") }, func(err error) { gotErr = err })

	failure := &Message{Name: MsgAddROSpecResponse, Fields: map[string]interface{}{
		"LLRPStatus": map[string]interface{}{"StatusCode": "Failure", "ErrorDescription": "bad juju"},
	}}
	require.True(t, r.fire(failure))
	require.Error(t, gotErr)
	var pse *ProtocolStateError
	assert.ErrorAs(t, gotErr, &pse)
	assert.Equal(t, "bad juju", pse.ErrorDescription)
}

func TestContinuationRegistryFailAll(t *testing.T) {
	r := newContinuationRegistry()
	var got error
	r.add(MsgDeleteROSpecResponse, nil, func(err error) { got = err })
	r.failAll(ErrClientClosed)
	assert.ErrorIs(t, got, ErrClientClosed)

	assert.False(t, r.fire(&Message{Name: MsgDeleteROSpecResponse}))
}
