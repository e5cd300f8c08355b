// dict.go — минимальный словарь тегов для implicit VR синтаксиса.
// Покрывает теги, участвующие в валидации, извлечении поисковых
// атрибутов и типовых датасетах; всё остальное декодируется как UN.
package dicom

// implicitVRDict — словарь VR для implicit-синтаксиса.
var implicitVRDict = map[Tag]string{
	TagFileMetaGroupLength: "UL",
	0x00020001:             "OB", // FileMetaInformationVersion
	0x00020002:             "UI", // MediaStorageSOPClassUID
	0x00020003:             "UI", // MediaStorageSOPInstanceUID
	TagTransferSyntaxUID:   "UI",
	0x00020012:             "UI", // ImplementationClassUID
	0x00020013:             "SH", // ImplementationVersionName

	0x00080005:               "CS", // SpecificCharacterSet
	0x00080008:               "CS", // ImageType
	TagSOPClassUID:            "UI",
	TagSOPInstanceUID:         "UI",
	TagStudyDate:              "DA",
	0x00080021:               "DA", // SeriesDate
	0x00080023:               "DA", // ContentDate
	TagStudyTime:              "TM",
	0x00080031:               "TM", // SeriesTime
	0x00080033:               "TM", // ContentTime
	TagAccessionNumber:        "SH",
	TagModality:               "CS",
	0x00080070:               "LO", // Manufacturer
	0x00080080:               "LO", // InstitutionName
	TagReferringPhysicianName: "PN",
	TagStudyDescription:       "LO",
	TagSeriesDescription:      "LO",
	0x00081090:               "LO", // ManufacturerModelName
	0x00081140:               "SQ", // ReferencedImageSequence
	0x00081150:               "UI", // ReferencedSOPClassUID
	0x00081155:               "UI", // ReferencedSOPInstanceUID

	TagPatientName: "PN",
	TagPatientID:   "LO",
	0x00100030:    "DA", // PatientBirthDate
	0x00100040:    "CS", // PatientSex

	0x00180050: "DS", // SliceThickness
	0x00180060: "DS", // KVP

	TagStudyInstanceUID:  "UI",
	TagSeriesInstanceUID: "UI",
	0x00200010:          "SH", // StudyID
	TagSeriesNumber:      "IS",
	TagInstanceNumber:    "IS",

	0x00280002: "US", // SamplesPerPixel
	0x00280004: "CS", // PhotometricInterpretation
	0x00280010: "US", // Rows
	0x00280011: "US", // Columns
	0x00280100: "US", // BitsAllocated
	0x00280101: "US", // BitsStored
	0x00280102: "US", // HighBit
	0x00280103: "US", // PixelRepresentation

	TagPixelData: "OW",
}

// lookupImplicitVR возвращает VR тега для implicit-синтаксиса.
// Неизвестные теги декодируются как UN (сырые байты).
func lookupImplicitVR(tag Tag) string {
	if vr, ok := implicitVRDict[tag]; ok {
		return vr
	}
	return "UN"
}
