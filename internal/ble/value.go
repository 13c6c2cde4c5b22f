package ble

import "github.com/hapcore/hap/internal/tlv"

// encodePDUValue wraps a characteristic value in the single HAP-Param
// TLV item a Characteristic-Read-Response or -Write-Response body
// carries (HAPBLEPDU+TLV.h's Value type).
func encodePDUValue(value []byte) []byte {
	w := tlv.NewWriter()
	_ = tlv.EncodeData(w, PDUTLVValue, value)
	return w.Bytes()
}

// decodePDUValue extracts the Value item from a Characteristic-Write
// or -Timed-Write request body.
func decodePDUValue(body []byte) ([]byte, bool) {
	items, err := tlv.NewReader(body).GetAll(PDUTLVValue)
	if err != nil {
		return nil, false
	}
	item, ok := items[PDUTLVValue]
	if !ok {
		return nil, false
	}
	return item.Value, true
}
