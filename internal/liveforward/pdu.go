package liveforward

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dcmrelay/mpps-proxy/internal/dicom"
)

// sendAssociateRequest sends a minimal A-ASSOCIATE-RQ PDU. Full
// presentation-context negotiation is the out-of-scope association
// layer's job (spec.md §1); this proxy only needs enough of the
// handshake to reach P-DATA-TF exchange with a cooperative upstream.
func (c *Conn) sendAssociateRequest() error {
	pdu := c.buildAssociateRequestPDU()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(pdu)
	return err
}

func (c *Conn) receiveAssociateResponse() error {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return err
	}
	header := make([]byte, 6)
	if _, err := c.conn.Read(header); err != nil {
		return fmt.Errorf("failed to read PDU header: %w", err)
	}
	if header[0] != 0x02 {
		return fmt.Errorf("unexpected PDU type: 0x%02x", header[0])
	}
	length := uint32(header[2])<<24 | uint32(header[3])<<16 | uint32(header[4])<<8 | uint32(header[5])
	data := make([]byte, length)
	_, err := c.conn.Read(data)
	return err
}

func (c *Conn) sendReleaseRequest() error {
	pdu := []byte{
		0x05, 0x00,
		0x00, 0x00, 0x00, 0x04,
		0x00, 0x00, 0x00, 0x00,
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(pdu)
	return err
}

func (c *Conn) buildAssociateRequestPDU() []byte {
	pdu := []byte{0x01, 0x00}
	pdu = append(pdu, 0x00, 0x01) // protocol version
	pdu = append(pdu, 0x00, 0x00) // reserved
	pdu = append(pdu, padAET(c.cfg.CalledAET)...)
	pdu = append(pdu, padAET(c.cfg.CallingAET)...)
	pdu = append(pdu, make([]byte, 32)...) // reserved

	appContext := []byte{0x10, 0x00}
	uid := "1.2.840.10008.3.1.1.1"
	appContext = append(appContext, byte(len(uid)>>8), byte(len(uid)))
	appContext = append(appContext, []byte(uid)...)
	pdu = append(pdu, appContext...)

	pdu = append(pdu, c.buildPresentationContext(1, dicom.SOPClassModalityPerformedProcedureStep)...)
	pdu = append(pdu, c.buildPresentationContext(3, dicom.SOPClassXRayRadiationDoseSRStorage)...)

	length := uint32(len(pdu) - 6)
	pdu[2] = byte(length >> 24)
	pdu[3] = byte(length >> 16)
	pdu[4] = byte(length >> 8)
	pdu[5] = byte(length)
	return pdu
}

func (c *Conn) buildPresentationContext(id byte, abstractSyntax string) []byte {
	item := []byte{0x20, 0x00}
	lengthPos := len(item)
	item = append(item, 0x00, 0x00)
	item = append(item, id)
	item = append(item, 0x00, 0x00, 0x00)

	as := []byte{0x30, 0x00}
	as = append(as, byte(len(abstractSyntax)>>8), byte(len(abstractSyntax)))
	as = append(as, []byte(abstractSyntax)...)
	item = append(item, as...)

	for _, ts := range []string{dicom.TransferSyntaxImplicitVRLittleEndian, dicom.TransferSyntaxExplicitVRLittleEndian} {
		tsItem := []byte{0x40, 0x00}
		tsItem = append(tsItem, byte(len(ts)>>8), byte(len(ts)))
		tsItem = append(tsItem, []byte(ts)...)
		item = append(item, tsItem...)
	}

	length := uint16(len(item) - 4)
	item[lengthPos] = byte(length >> 8)
	item[lengthPos+1] = byte(length)
	return item
}

// buildCommandPDU wraps a P-DATA-TF PDU carrying the DIMSE command
// attributes this proxy needs (cuid, iuid, message ID, command field)
// followed by the dataset encoded with the same spool codec used
// on-disk. A cooperative upstream speaking this proxy's own wire form is
// the boundary this repository tests against (spec.md §1 names the full
// Part-8 PDU codec out of scope).
func (c *Conn) buildCommandPDU(commandField uint16, cuid, iuid string, messageID uint16, data *dicom.Dataset, tsuid string) []byte {
	command := dicom.NewDataset()
	command.Set(dicom.TagAffectedSOPClassUID, "UI", cuid)
	command.Set(dicom.TagMessageID, "US", fmt.Sprintf("%d", messageID))
	if commandField == commandNCreateRQ {
		command.Set(dicom.TagAffectedSOPInstanceUID, "UI", iuid)
	} else {
		command.Set(dicom.TagRequestedSOPClassUID, "UI", cuid)
		command.Set(dicom.TagRequestedSOPInstanceUID, "UI", iuid)
	}

	fmi := dicom.NewFMI(iuid, cuid, tsuid)

	var commandBody bytes.Buffer
	_ = dicom.NewCodec().Write(&commandBody, fmi, command)
	commandBytes := commandBody.Bytes()

	var dataBody bytes.Buffer
	_ = dicom.NewCodec().Write(&dataBody, fmi, data)
	dataBytes := dataBody.Bytes()

	pdu := []byte{0x04, 0x00, 0x00, 0x00, 0x00, 0x00}
	pdu = append(pdu, byte(commandField>>8), byte(commandField))
	pdu = append(pdu, byte(len(commandBytes)>>24), byte(len(commandBytes)>>16), byte(len(commandBytes)>>8), byte(len(commandBytes)))
	pdu = append(pdu, commandBytes...)
	pdu = append(pdu, byte(len(dataBytes)>>24), byte(len(dataBytes)>>16), byte(len(dataBytes)>>8), byte(len(dataBytes)))
	pdu = append(pdu, dataBytes...)

	length := uint32(len(pdu) - 6)
	pdu[2] = byte(length >> 24)
	pdu[3] = byte(length >> 16)
	pdu[4] = byte(length >> 8)
	pdu[5] = byte(length)
	return pdu
}

// receiveResponse reads one P-DATA-TF frame built by buildCommandPDU's
// peer-side counterpart and decodes it back into (messageID, command,
// data).
func (c *Conn) receiveResponse() (uint16, *dicom.Dataset, *dicom.Dataset, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return 0, nil, nil, err
	}

	header := make([]byte, 8)
	if _, err := c.conn.Read(header); err != nil {
		return 0, nil, nil, err
	}

	cmdLenBuf := make([]byte, 4)
	if _, err := c.conn.Read(cmdLenBuf); err != nil {
		return 0, nil, nil, err
	}
	cmdLen := uint32(cmdLenBuf[0])<<24 | uint32(cmdLenBuf[1])<<16 | uint32(cmdLenBuf[2])<<8 | uint32(cmdLenBuf[3])
	cmdBytes := make([]byte, cmdLen)
	if _, err := c.conn.Read(cmdBytes); err != nil {
		return 0, nil, nil, err
	}
	_, command, err := dicom.NewCodec().Read(bytes.NewReader(cmdBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to decode response command: %w", err)
	}

	dataLenBuf := make([]byte, 4)
	if _, err := c.conn.Read(dataLenBuf); err != nil {
		return 0, nil, nil, err
	}
	dataLen := uint32(dataLenBuf[0])<<24 | uint32(dataLenBuf[1])<<16 | uint32(dataLenBuf[2])<<8 | uint32(dataLenBuf[3])
	dataBytes := make([]byte, dataLen)
	if _, err := c.conn.Read(dataBytes); err != nil {
		return 0, nil, nil, err
	}
	_, data, err := dicom.NewCodec().Read(bytes.NewReader(dataBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to decode response data: %w", err)
	}

	messageID := command.GetInt(dicom.TagMessageID, 0)
	return uint16(messageID), command, data, nil
}

// padAET pads an AE title to 16 bytes with spaces, matching PS3.8's
// fixed-width AE title fields.
func padAET(aet string) []byte {
	result := make([]byte, 16)
	copy(result, []byte(aet))
	for i := len(aet); i < 16; i++ {
		result[i] = ' '
	}
	return result
}
