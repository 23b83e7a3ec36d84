// Package fvcrypt implements the FlipViewer content protection scheme: the
// SAFER SK-128 block cipher, the viewer's propagating-CBC mode with a CFB
// tail finisher, the RIPEMD-256 based key derivation, the license unwrap that
// recovers a book's access code, and partial-file object decryption.
//
// Every scheme-specific constant (masks, suffixes, derivation formulas) lives
// in this package so a revised scheme or a second deployment's variant can be
// added without touching the pipeline.
package fvcrypt
