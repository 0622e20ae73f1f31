package main

import "time"

const (
	txQueueSize      = 1024 // capacity of async TX ring
	slcanReadBufSize = 4096 // per read() buffer for the slcan backend
	// largeBufferReclaimThreshold is the capacity above which the slcan RX
	// accumulation buffer is discarded and reallocated once empty, so bursts
	// of line noise do not permanently retain large backing arrays.
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond
)
