// Package render turns decrypted page objects into raster images. Flash
// movies are exported frame-by-frame through the JPEXS decompiler CLI;
// plain image pages pass through after a decode check. Every rendered image
// is fully decoded before it is accepted so corrupt payloads surface as
// render failures instead of broken document pages.
package render
