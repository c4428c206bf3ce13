package media

// This package defines common methods and operations for transforming raw towed-camera
// voyage deployments (still images, video, sensor CSV logs) into a standardized,
// metadata-rich dataset. Common operations include: importing deployment files,
// processing files (canonical renames, thumbnails, overview mosaics) and packaging
// files with iFDO-style metadata records.
