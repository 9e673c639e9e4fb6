// Package atca is a driver for the MicrochipTech ATECC608 device in Go.
//
// It supports communication using I²C and USB. Any other transport can be
// used by implementing HAL.
//
// A Dev serializes all commands sent to one device. Every operation that
// needs several commands, like signing a digest, holds the device for the
// whole sequence so commands of concurrent callers never interleave.
//
// Errors can be inspected with errors.Is and errors.As. Bus failures match
// ErrTransportFailure, a command the device refused matches
// ErrDeviceRejected and carries the status code in a *DeviceRejectedError.
//
// This code is based on MicrochipTech's Cryptoauthlib code, thus its original
// copyright is retained for this code.
//
// Copyright (c) 2022 Northvolt AB and the atecc authors.
// Copyright (c) 2015-2022 Microchip Technology Inc. and its subsidiaries.
//
// # Datasheets
//
// Find all datasheets in the Trust Platform Design Suite git repository.
// https://github.com/MicrochipTech/cryptoauth_trustplatform_designsuite/
package atca
