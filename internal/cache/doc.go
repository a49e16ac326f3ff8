// Package cache keeps rendered synthesis output so repeated requests for the
// same text, voice and format skip inference. A bounded in-memory LRU sits
// in front of a zstd-compressed disk store.
package cache
