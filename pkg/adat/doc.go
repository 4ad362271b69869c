// Package adat reads and writes ADAT files.
//
// An ADAT file is tab separated text holding a measurement matrix
// (samples by analytes), metadata for every sample row and analyte column,
// and an ordered header block:
//
//	!Checksum  <sha1 of everything below>
//	^HEADER    key/value lines
//	^COL_DATA  !Name / !Type of the column metadata fields
//	^ROW_DATA  !Name / !Type of the row metadata fields
//	^TABLE_BEGIN
//	           column metadata rows, the row field names, then one line per sample
//
// Parse tolerates two historical variants: samples whose trailing row
// metadata is missing (padded with empty strings) and V3 SeqIds that embed
// the version ("12345-6_7"), which are split into SeqId and SeqIdVersion.
// Both are reported as Diagnostics and logged. Write is deterministic: the
// same record and options always give the same bytes.
//
// # Basic Usage
//
//	rec, diags, err := adat.ReadFile("run.adat", adat.ReadOptions{})
//	if err != nil {
//	    return err
//	}
//	for _, d := range diags {
//	    fmt.Println(d.Message)
//	}
//	err = adat.WriteFile("run.adat.gz", rec, adat.DefaultWriteOptions())
package adat
