package orchestrator

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampProgress(t *testing.T) {
	for _, test := range []struct {
		transferred, total int64
		want                float64
	}{
		{0, 100, 0},
		{50, 100, 0.5},
		{100, 100, 1},
		{150, 100, 1},
		{0, 0, 0},
		{5, 0, 1},
		{10, -1, 1},
		{-5, 100, 0},
	} {
		got := ClampProgress(test.transferred, test.total)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
		assert.Equal(t, test.want, got, "ClampProgress(%d, %d)", test.transferred, test.total)
	}
}

func TestRunTransferLoopCopiesAllBytes(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), chunkSize*2+17)
	src := bytes.NewReader(payload)
	var dst bytes.Buffer
	task := &TransferTask{Total: int64(len(payload))}

	var lastFraction float64
	task.Progress = func(f float64) { lastFraction = f }

	err := runTransferLoop(src, &dst, task, nil)
	assert.NoError(t, err)
	assert.Equal(t, payload, dst.Bytes())
	assert.Equal(t, int64(len(payload)), task.Transferred)
	assert.Equal(t, 1.0, lastFraction)
}

func TestRunTransferLoopAborts(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), chunkSize*4)
	src := bytes.NewReader(payload)
	var dst bytes.Buffer
	task := &TransferTask{Total: int64(len(payload))}

	calls := 0
	pollAbort := func() bool {
		calls++
		return calls > 1
	}

	err := runTransferLoop(src, &dst, task, pollAbort)
	assert.ErrorIs(t, err, ErrAborted)
	assert.True(t, task.Aborted())
	assert.Less(t, dst.Len(), len(payload))
}

type errAfterReader struct {
	n   int
	err error
}

func (r *errAfterReader) Read(p []byte) (int, error) {
	if r.n <= 0 {
		return 0, r.err
	}
	if len(p) > r.n {
		p = p[:r.n]
	}
	r.n -= len(p)
	for i := range p {
		p[i] = 'z'
	}
	return len(p), nil
}

func TestRunTransferLoopPropagatesReadError(t *testing.T) {
	boom := errors.New("disk fell over")
	src := &errAfterReader{n: 10, err: boom}
	var dst bytes.Buffer
	task := &TransferTask{Total: 10}

	err := runTransferLoop(src, &dst, task, nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
