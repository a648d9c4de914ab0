package client

import (
	"github.com/2lambda123/linux-msm-cdba/internal/client/workqueue"
	"github.com/2lambda123/linux-msm-cdba/internal/protocol"
)

// enqueueBootImage splits image into FASTBOOT_DOWNLOAD work items of at
// most protocol.FastbootChunkSize payload bytes, terminated by exactly
// one zero-length frame (spec.md §4.3, invariant 6). Each chunk is
// passed to Push as a sub-slice of image, and Push copies it into that
// item's own frame buffer; queued items do not share image's memory.
func enqueueBootImage(q *workqueue.Queue, image []byte) {
	for off := 0; off < len(image); off += protocol.FastbootChunkSize {
		end := off + protocol.FastbootChunkSize
		if end > len(image) {
			end = len(image)
		}
		q.Push(protocol.MsgFastbootDownload, image[off:end])
	}
	q.Push(protocol.MsgFastbootDownload, nil)
}
