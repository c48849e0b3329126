package perform

import _ "embed"

// stdlibSource is the map stdlib bootstrap (perform step 9's built-in map
// stdlib, embedded as an asset): a small `std` global layered
// on top of __ffi.unstable.*, evaluated once per perform before the map's
// own source runs.
//
//go:embed assets/stdlib.js
var stdlibSource string

const stdlibScriptName = "std.js"
