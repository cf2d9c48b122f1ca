// Package spectral contains the signal-processing collaborators of the
// fingerprint pipeline: the log-frequency spectrogram transform, the standard
// 2-D Haar wavelet decomposition and the top-wavelet bit encoder.
package spectral
