package summary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ipcContinuation prefixes every message of an Arrow IPC stream.
const ipcContinuation = 0xFFFFFFFF

// maxArrowFields caps how many schema fields are listed.
const maxArrowFields = 8

// looksLikeArrowIPC is a cheap pre-check so arbitrary binary frames are not
// handed to the IPC reader.
func looksLikeArrowIPC(frame []byte) bool {
	return len(frame) >= 8 && binary.LittleEndian.Uint32(frame) == ipcContinuation
}

// describeArrowIPC renders an Arrow IPC stream frame as its schema, batch
// count and row count. ok is false if the frame is not a readable stream.
func describeArrowIPC(frame []byte) (desc string, ok bool) {
	if !looksLikeArrowIPC(frame) {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			desc, ok = "", false
		}
	}()

	reader, err := ipc.NewReader(bytes.NewReader(frame), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return "", false
	}
	defer reader.Release()

	var batches, rows int64
	for reader.Next() {
		batches++
		rows += reader.Record().NumRows()
	}
	if reader.Err() != nil {
		return "", false
	}

	return fmt.Sprintf("[arrow ipc %d bytes: %d batches, %d rows, schema {%s}]",
		len(frame), batches, rows, schemaFields(reader.Schema())), true
}

func schemaFields(schema *arrow.Schema) string {
	fields := schema.Fields()
	parts := make([]string, 0, min(len(fields), maxArrowFields)+1)
	for i, f := range fields {
		if i == maxArrowFields {
			parts = append(parts, fmt.Sprintf("... (%d more)", len(fields)-maxArrowFields))
			break
		}
		parts = append(parts, f.Name+": "+f.Type.String())
	}
	return strings.Join(parts, ", ")
}
