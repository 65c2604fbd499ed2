package dicom

import (
	"encoding/hex"
	"math/big"

	"github.com/google/uuid"
)

// rootOID is the standard 2.25 OID arc for UUID-derived identifiers, used
// to mint process-unique UIDs from random UUIDs (spec.md §4.4 step 4:
// "UUID-to-OID scheme").
const rootOID = "2.25"

// NewUID mints a fresh, globally-unique DICOM UID by encoding a random
// UUID's 128 bits as a decimal integer under the 2.25 UUID-OID arc, per
// ITU-T X.667 / ISO/IEC 9834-8. This mirrors UIDUtils.createUID() in
// original_source/Mpps.java, which uses the same UUID-to-OID scheme.
func NewUID() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:])
	return rootOID + "." + n.String()
}

// DeviceObserverUID reproduces the original implementation's
// (arguably dubious, see item 2 of DESIGN.md's "Open questions
// resolved") parameter encoding: the calling
// AE title's raw bytes are lowercase-hex-encoded, and that hex string is
// parsed as a base-16 big integer and rendered back out in base 10. This
// drops any leading-zero information the hex encoding carried, exactly as
// Mpps.java's `new BigInteger(Hex.encodeHex(aet.getBytes()), 16)` does.
func DeviceObserverUID(callingAET string) string {
	h := hex.EncodeToString([]byte(callingAET))
	n := new(big.Int)
	n.SetString(h, 16)
	return n.String()
}

// IrradiationEventUID derives the per-exposure event UID the transformer
// passes as a template parameter: the original performed procedure step
// instance UID with the literal digit "1" appended (spec.md §4.4 step 2).
func IrradiationEventUID(ppsInstanceUID string) string {
	return ppsInstanceUID + "1"
}
