/*
Package tracker implements multi-class, multi-object tracking over per-frame
bounding box detections using the ByteTrack association algorithm.

A BYTETracker instance consumes one frame's detections at a time as parallel
arrays of boxes, confidence scores and class ids, and returns a stable
external track id for each detection, aligned to the input order.  Tracks of
different classes never compete for association, while track ids are drawn
from counters shared across all classes.

The engine is a synchronous in-process library: it performs no detection,
video decoding or drawing itself and is driven entirely by the caller's
per-frame Update calls.
*/
package tracker
