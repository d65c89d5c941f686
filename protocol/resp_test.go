// File: protocol/resp_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInlineCommand(t *testing.T) {
	var p Parser
	p.Feed([]byte("PING\r\n"))
	args, ok, err := p.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"PING"}, args)

	_, ok, err = p.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestArrayCommand(t *testing.T) {
	var p Parser
	p.Feed([]byte("*2\r\n$4\r\nECHO\r\n$5\r\nhello\r\n"))
	args, ok, err := p.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"ECHO", "hello"}, args)
}

func TestPartialFeedResumes(t *testing.T) {
	var p Parser
	p.Feed([]byte("*1\r\n$4\r\nPI"))
	_, ok, err := p.Next()
	require.NoError(t, err)
	require.False(t, ok, "incomplete command must not parse")

	p.Feed([]byte("NG\r\n"))
	args, ok, err := p.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"PING"}, args)
	require.Zero(t, p.Pending())
}

func TestPipelinedCommands(t *testing.T) {
	var p Parser
	p.Feed([]byte("PING\r\nPING\r\n*1\r\n$4\r\nPING\r\n"))
	for i := 0; i < 3; i++ {
		args, ok, err := p.Next()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []string{"PING"}, args)
	}
}

func TestMalformedPrefixErrors(t *testing.T) {
	var p Parser
	p.Feed([]byte("*2\r\nnope\r\n"))
	_, _, err := p.Next()
	require.Error(t, err)
}

func TestReplyAppenders(t *testing.T) {
	require.Equal(t, "+PONG\r\n", string(AppendSimpleString(nil, "PONG")))
	require.Equal(t, "-ERR bad\r\n", string(AppendError(nil, "ERR bad")))
	require.Equal(t, "$5\r\nhello\r\n", string(AppendBulkString(nil, "hello")))
}
