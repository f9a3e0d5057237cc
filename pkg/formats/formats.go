// Package formats reads and writes the file formats used by the mesh
// tools: Wavefront OBJ meshes, ASCII FBX scenes and scanline OpenEXR
// images.
package formats

// Note: OBJ is read and written in obj.go
// Note: FBX 7.4 ASCII is write-only, see fbx.go
// Note: OpenEXR supports uncompressed scanline files only, see exr.go
