// Package analysis estimates tempo and musical key for library items.
//
// Tempo comes from an onset detector run over decoded mono PCM at the file's
// native sample rate: spectral flux over Hann-windowed frames, adaptive-
// threshold peak picking, then beat tracking at the period the onset envelope
// autocorrelates best with. Raw estimates pass through CorrectBPM before they
// are stored.
//
// Key detection shells out to keyfinder-cli. Any failure of that tool leaves
// the key unset and is logged; it never fails the batch.
package analysis
