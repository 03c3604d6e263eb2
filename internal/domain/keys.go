package domain

// KeyPrefix namespaces every Redis key written by docdex.
// Overridden once at startup from storage.key_prefix before any store access.
var KeyPrefix = "docdex:"
